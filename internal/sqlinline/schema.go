package sqlinline

// QMigrateSchema creates the detection tables when they are missing.
const QMigrateSchema = `--sql 3d1f6c0a-8b2e-4f57-a1c9-6e0d2b7f4a15
create table if not exists users (
    id text primary key,
    email text not null default '',
    name text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create table if not exists detection_jobs (
    id uuid primary key,
    owner_id text not null references users(id) on delete cascade,
    state text not null check (state in ('waiting', 'active', 'completed', 'failed')),
    attempts int not null default 0,
    input_image bytea,
    input_mime text not null default '',
    input_filename text not null default '',
    image_url text not null default '',
    image_public_id text not null default '',
    region text not null default '',
    result_json jsonb,
    failure_reason text not null default '',
    submitted_at timestamptz not null,
    started_at timestamptz,
    finished_at timestamptz,
    next_run_at timestamptz not null,
    updated_at timestamptz not null
);

create index if not exists detection_jobs_runnable_idx on detection_jobs (state, next_run_at);
create index if not exists detection_jobs_owner_idx on detection_jobs (owner_id, submitted_at desc);

create table if not exists crops (
    id uuid primary key,
    owner_id text not null references users(id) on delete cascade,
    crop_name text not null,
    image_url text not null default '',
    image_public_id text not null default '',
    created_at timestamptz not null default now()
);

alter table crops add column if not exists job_id uuid;
create unique index if not exists crops_job_idx on crops (job_id);

create table if not exists infections (
    id uuid primary key,
    crop_id uuid not null references crops(id) on delete cascade,
    disease_class text not null,
    disease_class_raw text not null,
    disease_top text not null default '',
    is_healthy boolean not null default false,
    confidence double precision not null default 0,
    top_score double precision not null default 0,
    inference_id text not null default '',
    image_width int not null default 0,
    image_height int not null default 0,
    description text not null default '',
    causes text[] not null default '{}',
    symptoms text[] not null default '{}',
    prevention text[] not null default '{}',
    treatment text[] not null default '{}',
    info_source text not null default '',
    created_at timestamptz not null default now()
);
`
