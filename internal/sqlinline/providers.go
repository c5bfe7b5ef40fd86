package sqlinline

const QSelectProviders = `--sql 91c1162a-e38d-4faa-a8e2-04d2ff9e070d
select id, name, modalities, formats, cost_model, quality_score, avg_latency_s, fail_rate, enabled, created_at, updated_at
from providers
order by id asc;
`

const QSelectEnabledProviders = `--sql abe50a33-a7a3-4073-9d46-a02c110dd5d4
select id, name, modalities, formats, cost_model, quality_score, avg_latency_s, fail_rate, enabled, created_at, updated_at
from providers
where enabled = true
order by id asc;
`

const QSelectProviderByID = `--sql 70715fda-44a0-46c5-901e-179de23d9785
select id, name, modalities, formats, cost_model, quality_score, avg_latency_s, fail_rate, enabled, created_at, updated_at
from providers
where id = $1;
`

const QSelectProviderMetrics = `--sql cb73abf0-f303-4528-891b-68b1ac013c1f
select provider_id, use_case, format, trials, avg_reward, updated_at
from provider_metrics
where use_case = $1 and format = $2;
`

// Running average folded in as a single atomic upsert so concurrent workers
// never lose an observation.
const QUpsertProviderOutcome = `--sql fb8d7dad-803f-4753-be7b-7532e82dce20
insert into provider_metrics (provider_id, use_case, format, trials, avg_reward, updated_at)
values ($1, $2, $3, 1, $4, now())
on conflict (provider_id, use_case, format) do update
set trials = provider_metrics.trials + 1,
    avg_reward = provider_metrics.avg_reward
               + ($4 - provider_metrics.avg_reward) / (provider_metrics.trials + 1),
    updated_at = now();
`
