package sqlinline

const QSelectQuotaAccount = `--sql 2f2fb8d7-596e-4be1-98b1-2d4497640e65
select tenant_id, quota_images, images_used, quota_videos, videos_used,
       quota_credits, credits_used, resets_on, created_at, updated_at
from quota_accounts
where tenant_id = $1;
`

// Conditional single-statement increments keep admission correct under
// concurrent workers. A non-positive limit means unrestricted.
const QConsumeQuotaImages = `--sql 3d21532b-5dbb-43ad-be8a-9fff35843ade
update quota_accounts
set images_used = images_used + $2, updated_at = now()
where tenant_id = $1
  and (quota_images <= 0 or (images_used + $2)::numeric <= quota_images * 1.10);
`

const QConsumeQuotaVideos = `--sql df4377cd-c4bf-4b08-8856-b240c22b1257
update quota_accounts
set videos_used = videos_used + $2, updated_at = now()
where tenant_id = $1
  and (quota_videos <= 0 or (videos_used + $2)::numeric <= quota_videos * 1.10);
`

const QConsumeQuotaCredits = `--sql f2c3ae4c-e625-48d5-bfd3-cd0db19618a2
update quota_accounts
set credits_used = credits_used + $2, updated_at = now()
where tenant_id = $1
  and (quota_credits <= 0 or (credits_used + $2)::numeric <= quota_credits * 1.10);
`

const QReleaseQuotaImages = `--sql fa7825a7-ab38-45ab-93a7-46d01a18297d
update quota_accounts
set images_used = greatest(0, images_used - $2), updated_at = now()
where tenant_id = $1;
`

const QReleaseQuotaVideos = `--sql d898b5df-add4-418b-99be-b9415bbc69b4
update quota_accounts
set videos_used = greatest(0, videos_used - $2), updated_at = now()
where tenant_id = $1;
`

const QReleaseQuotaCredits = `--sql 46635cd2-f620-42fd-b04d-6193ba3f09df
update quota_accounts
set credits_used = greatest(0, credits_used - $2), updated_at = now()
where tenant_id = $1;
`

// Reset is idempotent: a no-op while resets_on is still in the future.
const QResetQuotaAccount = `--sql 9f158e6f-234c-4f11-864d-0dcc7b89de0b
update quota_accounts
set images_used = 0, videos_used = 0, credits_used = 0, resets_on = $2, updated_at = now()
where tenant_id = $1 and resets_on <= now();
`

const QSelectQuotaTenantsDue = `--sql 0262150f-4621-4c21-951f-cc8615604020
select tenant_id from quota_accounts where resets_on <= $1 order by tenant_id asc;
`

// Operator upsert: creates the account on first use, otherwise rewrites the
// limits while preserving current consumption.
const QUpsertQuotaPlan = `--sql 7c1f54e2-9a0b-4af4-a1c8-6f1de3b20c41
insert into quota_accounts (tenant_id, quota_images, quota_videos, quota_credits, resets_on)
values ($1, $2, $3, $4, $5)
on conflict (tenant_id) do update
set quota_images = excluded.quota_images,
    quota_videos = excluded.quota_videos,
    quota_credits = excluded.quota_credits,
    resets_on = excluded.resets_on,
    updated_at = now()
returning tenant_id, quota_images, images_used, quota_videos, videos_used, quota_credits, credits_used, resets_on;
`
