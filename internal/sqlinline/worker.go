package sqlinline

const QInsertDetectionJob = `--sql 7c2e9d41-5a0b-4e36-9f18-2b4d6a8c1e73
insert into detection_jobs (
    id, owner_id, state, attempts, input_image, input_mime, input_filename,
    region, submitted_at, next_run_at, updated_at
)
values ($1::uuid, $2::text, $3::text, $4::int, $5::bytea, $6::text, $7::text, $8::text, $9::timestamptz, $10::timestamptz, $9::timestamptz);
`

const QWorkerClaimJob = `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db
with next_job as (
    select id
    from detection_jobs
    where state = 'waiting'
      and next_run_at <= $1::timestamptz
    order by next_run_at asc, submitted_at asc
    for update skip locked
    limit 1
),
updated as (
    update detection_jobs
    set state = 'active',
        attempts = attempts + 1,
        started_at = $1::timestamptz,
        updated_at = $1::timestamptz
    where id in (select id from next_job)
    returning id, owner_id, state, attempts, input_image, input_mime, input_filename,
              image_url, image_public_id, region, result_json, failure_reason,
              submitted_at, started_at, finished_at, next_run_at, updated_at
)
select * from updated;
`

const QTransitionDetectionJob = `--sql a81f3c26-0d4e-4b9a-8e57-c36b1f2d9a04
update detection_jobs
set state = $3::text,
    result_json = coalesce($4::jsonb, result_json),
    failure_reason = case when $5::text = '' then failure_reason else $5::text end,
    next_run_at = coalesce($6::timestamptz, next_run_at),
    started_at = case when $3::text = 'active' then $7::timestamptz else started_at end,
    finished_at = case when $3::text in ('completed', 'failed') then $7::timestamptz else finished_at end,
    input_image = case when $3::text in ('completed', 'failed') then null else input_image end,
    updated_at = $7::timestamptz
where id = $1::uuid
  and state = $2::text;
`

const QSaveJobImage = `--sql 5be0a7d3-91c4-4f2e-b6a8-0e3d47c9f216
update detection_jobs
set image_url = $2::text,
    image_public_id = $3::text,
    updated_at = now()
where id = $1::uuid;
`

const QSelectDetectionJob = `--sql c94d1e7b-2f63-4a08-9b15-7ea2d0c6b358
select id, owner_id, state, attempts, input_image, input_mime, input_filename,
       image_url, image_public_id, region, result_json, failure_reason,
       submitted_at, started_at, finished_at, next_run_at, updated_at
from detection_jobs
where id = $1::uuid
limit 1;
`

const QListDetectionJobsByOwner = `--sql 1e6b4a92-c7d0-4f3b-85e2-9a0c3d7f6b41
select id, owner_id, state, attempts, null::bytea as input_image, input_mime, input_filename,
       image_url, image_public_id, region, result_json, failure_reason,
       submitted_at, started_at, finished_at, next_run_at, updated_at
from detection_jobs
where owner_id = $1::text
order by submitted_at desc
limit $2::int;
`

const QListStaleDetectionJobs = `--sql 62f8b0c5-3d1a-4e97-a4c6-d58e2b1f0a37
select id, owner_id, state, attempts, null::bytea as input_image, input_mime, input_filename,
       image_url, image_public_id, region, result_json, failure_reason,
       submitted_at, started_at, finished_at, next_run_at, updated_at
from detection_jobs
where state = 'active'
  and started_at < $1::timestamptz
order by started_at asc
limit 100;
`

const QPurgeFinishedDetectionJobs = `--sql 0d9c3e58-a6b2-47f1-8c04-b13e5f7a2d69
delete from detection_jobs
where state in ('completed', 'failed')
  and finished_at < $1::timestamptz;
`
