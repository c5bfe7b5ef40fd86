package sqlinline

const QCountJobsByStatus = `--sql e3bf77f3-f7d5-4604-bc69-4e73c1455eb2
select status, count(*) from jobs group by status;
`

const QOldestQueuedAge = `--sql 86ca6dbe-39a8-49ad-b0e6-0fcab2290b05
select coalesce(extract(epoch from now() - min(created_at)), 0)
from jobs
where status = 'queued';
`

const QCountStuckProcessing = `--sql d6f09145-23e9-4dfd-b901-46cd143ddb76
select count(*)
from jobs
where status = 'processing' and updated_at < now() - $1::interval;
`

const QSelectRecentJobs = `--sql c1cb6367-aa46-4868-a5b1-76aca0147a1f
select id, tenant_id, user_id, order_id, kind, status, payload, result, attempts, max_attempts,
       idempotency_key, locked_by, lease_expires_at, next_run_at, error_message, created_at, updated_at
from jobs
order by created_at desc
limit $1;
`
