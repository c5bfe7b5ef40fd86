package sqlinline

const QInsertStep = `--sql 367d141b-97ff-4ffa-b65d-76aa1e101a92
insert into job_steps (id, job_id, step_type, step_index, status, attempt, input)
values ($1, $2, $3, $4, 'pending', 0, $5::jsonb);
`

const QSelectStepsByJob = `--sql 5eceddd1-b907-4c75-8a97-66211c4c5933
select id, job_id, step_type, step_index, status, attempt, input, output, error,
       started_at, finished_at, created_at, updated_at
from job_steps
where job_id = $1
order by step_index asc;
`

const QSelectStepByID = `--sql 63659759-3bc3-493c-85ee-0d2508bda67c
select id, job_id, step_type, step_index, status, attempt, input, output, error,
       started_at, finished_at, created_at, updated_at
from job_steps
where id = $1;
`

const QMarkStepRunning = `--sql 6f180300-afb4-4a0a-9505-86368532d552
update job_steps
set status = 'running', attempt = attempt + 1, started_at = now(), finished_at = null,
    error = '', updated_at = now()
where id = $1 and status in ('pending', 'queued');
`

const QMarkStepCompleted = `--sql cd7e5d45-c68e-4f85-bddf-9625348e6986
update job_steps
set status = 'completed', output = coalesce($2::jsonb, output), finished_at = now(), updated_at = now()
where id = $1 and status = 'running';
`

const QMarkStepFailed = `--sql 372fbe22-b604-4a06-bead-864710e581a5
update job_steps
set status = 'failed', error = $2, finished_at = now(), updated_at = now()
where id = $1 and status = 'running';
`

const QMarkStepSkipped = `--sql 2681e825-e400-448b-9b01-ffad2574e9fa
update job_steps
set status = 'skipped', finished_at = now(), updated_at = now()
where id = $1 and status in ('pending', 'queued');
`

// A canceled job's in-flight step goes back to the queue so an unblock can
// resume the pipeline from it.
const QRequeueStep = `--sql 3857f369-8fdf-40db-9921-16f8395d4cae
update job_steps
set status = 'queued', started_at = null, finished_at = null, updated_at = now()
where id = $1 and status = 'running';
`

// Retry never touches completed steps.
const QResetStepForRetry = `--sql c0551a96-9d65-4954-a0da-2f5683799ad5
update job_steps
set status = 'queued', attempt = 0, error = '', output = null,
    started_at = null, finished_at = null, updated_at = now()
where id = $1 and status in ('failed', 'queued', 'pending');
`
