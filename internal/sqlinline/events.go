package sqlinline

const QInsertJobEvent = `--sql 2a0e99ce-9093-4514-adbe-13021e82394c
insert into job_events (id, job_id, step_id, event_type, message, metadata, created_at)
values ($1, $2, $3, $4, $5, coalesce($6::jsonb, '{}'::jsonb), now());
`

const QSelectRecentJobEvents = `--sql 788296de-42d7-4237-87a8-49952a0e42e7
select id, job_id, step_id, event_type, message, metadata, created_at
from job_events
where job_id = $1
order by created_at desc, id desc
limit $2;
`
