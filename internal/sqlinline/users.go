package sqlinline

const QUpsertOwner = `--sql 5a82e2ad-7b09-40c5-9d22-2d28db58c0f0
insert into users (id, email, name, created_at, updated_at)
values ($1::text, $2::text, $3::text, now(), now())
on conflict (id) do update set
    email = case when excluded.email = '' then users.email else excluded.email end,
    name = case when excluded.name = '' then users.name else excluded.name end,
    updated_at = now();
`

const QOwnerExists = `--sql 1239018e-4f5f-46a0-8f0d-81b2a3a5f0f8
select exists(select 1 from users where id = $1::text);
`
