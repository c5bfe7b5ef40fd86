package sqlinline

const QInsertJobIdempotent = `--sql f6489ff8-3564-4292-b99f-f895833f46e1
insert into jobs (id, tenant_id, user_id, order_id, kind, status, payload, attempts, max_attempts, idempotency_key, next_run_at)
values ($1, $2, $3, $4, $5, 'queued', $6::jsonb, 0, $7, $8, now())
on conflict (tenant_id, idempotency_key) do nothing
returning id;
`

const QSelectJobByKey = `--sql c234ce3f-d5b7-4054-8212-f893933e5286
select id, tenant_id, user_id, order_id, kind, status, payload, result, attempts, max_attempts,
       idempotency_key, locked_by, lease_expires_at, next_run_at, error_message, created_at, updated_at
from jobs
where tenant_id = $1 and idempotency_key = $2;
`

const QSelectJobByID = `--sql 77b992a0-171c-49d2-a11e-5343797b6e2f
select id, tenant_id, user_id, order_id, kind, status, payload, result, attempts, max_attempts,
       idempotency_key, locked_by, lease_expires_at, next_run_at, error_message, created_at, updated_at
from jobs
where id = $1;
`

const QSelectJobForTenant = `--sql f8c36ad3-62e2-4a69-93c1-99a84b54f77e
select id, tenant_id, user_id, order_id, kind, status, payload, result, attempts, max_attempts,
       idempotency_key, locked_by, lease_expires_at, next_run_at, error_message, created_at, updated_at
from jobs
where id = $1 and tenant_id = $2;
`

// Claim is the sole concurrency-control primitive: one atomic conditional
// update, row-locked with skip locked so concurrent workers never both take
// the same job. Rows whose lease expired are reclaimable after a crash.
const QClaimNextJob = `--sql 324db881-601e-4816-b501-1daf26d77958
with next_job as (
    select id
    from jobs
    where (status in ('queued', 'retrying') and next_run_at <= now())
       or (status = 'processing' and lease_expires_at is not null and lease_expires_at <= now())
    order by created_at asc
    for update skip locked
    limit 1
)
update jobs
set status = 'processing', locked_by = $1, lease_expires_at = now() + $2::interval, updated_at = now()
where id in (select id from next_job)
returning id, tenant_id, user_id, order_id, kind, status, payload, result, attempts, max_attempts,
          idempotency_key, locked_by, lease_expires_at, next_run_at, error_message, created_at, updated_at;
`

const QMarkJobDone = `--sql 0b9685e5-438e-4248-bcf6-f1357180ad44
update jobs
set status = 'done', result = coalesce($2::jsonb, result), locked_by = null, lease_expires_at = null,
    error_message = '', updated_at = now()
where id = $1 and status = 'processing';
`

const QMarkJobRetrying = `--sql 4b8bd460-1ab0-43d4-b6bc-a4b4fbf971fa
update jobs
set status = 'retrying', attempts = $2, error_message = $3, next_run_at = $4,
    locked_by = null, lease_expires_at = null, updated_at = now()
where id = $1;
`

const QMarkJobError = `--sql 451f22fe-809a-4f6b-bc91-54da5831853d
update jobs
set status = 'error', attempts = $2, error_message = $3,
    locked_by = null, lease_expires_at = null, updated_at = now()
where id = $1;
`

const QCancelJob = `--sql 1ea5e2b2-0ca5-407f-9e8a-4364e80defde
update jobs
set status = 'canceled', locked_by = null, lease_expires_at = null, updated_at = now()
where id = $1 and tenant_id = $2 and status not in ('done', 'error', 'canceled');
`

const QSelectJobStatus = `--sql a1d046bb-ac69-42f0-b9c5-e0d78c3444a2
select status from jobs where id = $1;
`

const QUnblockJobs = `--sql dd68b22e-0c4e-4a81-91d4-7ba73198ea3c
update jobs
set status = 'queued', attempts = 0, error_message = '', next_run_at = now(),
    locked_by = null, lease_expires_at = null, updated_at = now()
where tenant_id = $1 and id = any($2::uuid[])
returning id;
`
