package sqlinline

// QInsertDiagnosis writes the crop and its infection in one statement so a
// failure never leaves a crop without a diagnosis. A job that already has a
// diagnosis gets its existing id back and nothing is inserted.
const QInsertDiagnosis = `--sql b4e71a0c-9d25-4c68-a3f1-2c8e6d0b5f97
with existing as (
    select i.id
    from infections i
    join crops c on c.id = i.crop_id
    where c.job_id = $20::uuid
),
crop as (
    insert into crops (id, job_id, owner_id, crop_name, image_url, image_public_id, created_at)
    select gen_random_uuid(), $20::uuid, $1::text, $2::text, $3::text, $4::text, now()
    where not exists (select 1 from existing)
    on conflict (job_id) do nothing
    returning id
),
infection as (
    insert into infections (
        id, crop_id, disease_class, disease_class_raw, disease_top, is_healthy,
        confidence, top_score, inference_id, image_width, image_height,
        description, causes, symptoms, prevention, treatment, info_source, created_at
    )
    select gen_random_uuid(), crop.id, $5::text, $6::text, $7::text, $8::boolean,
           $9::float8, $10::float8, $11::text, $12::int, $13::int,
           $14::text, $15::text[], $16::text[], $17::text[], $18::text[], $19::text, now()
    from crop
    returning id
)
select id::text from infection
union all
select id::text from existing;
`
