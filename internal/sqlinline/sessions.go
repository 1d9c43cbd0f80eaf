package sqlinline

const QInsertSession = `--sql 288d1f4c-4949-4381-9011-cdc6eebd610b
insert into sessions (id, user_id, subject, level, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::timestamptz, $5::timestamptz);
`

const QSelectSession = `--sql c90bacb0-3e4d-4f9c-af1a-0f94741ca017
select id::text, user_id, subject, level, created_at, updated_at, ended_at
from sessions
where id = $1::uuid;
`

const QListSessionsByUser = `--sql 6f37c7e4-c950-4ded-921b-f962fd64fc87
select id::text, user_id, subject, level, created_at, updated_at, ended_at
from sessions
where user_id = $1::text
order by updated_at desc, id
limit $2::int;
`

const QEndSession = `--sql 2db68132-95a2-4055-a084-471bd863455b
update sessions
set ended_at = coalesce(ended_at, $2::timestamptz),
    updated_at = $2::timestamptz
where id = $1::uuid;
`

const QEndIdleSessions = `--sql 8cca595d-fa21-4cb0-8eeb-d7b85ac688c9
update sessions
set ended_at = now(),
    updated_at = now()
where ended_at is null
  and updated_at < $1::timestamptz;
`
