package sqlinline

// QInsertMessage appends a message and bumps the session activity time.
// Replaying the same id returns the stored row instead of inserting again.
const QInsertMessage = `--sql 747fb1f0-2579-48fa-bf29-6cdbdfdb9075
with
ins as (
  insert into messages (id, session_id, user_id, role, content, image_ref, created_at, updated_at)
  values ($1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::timestamptz, $7::timestamptz)
  on conflict (id) do nothing
  returning seq, created_at
),
touched as (
  update sessions
  set updated_at = $7::timestamptz
  where id = $2::uuid
    and exists (select 1 from ins)
  returning id
)
select seq, created_at from ins
union all
select m.seq, m.created_at
from messages m
where m.id = $1::uuid
  and m.session_id = $2::uuid
  and not exists (select 1 from ins);
`

const QSelectMessage = `--sql 1d45e131-360a-40b0-99a4-0bd5c8fe32e2
select id::text, session_id::text, user_id, role, content, image_ref, seq, created_at, updated_at
from messages
where session_id = $1::uuid
  and id = $2::uuid;
`

const QRecentMessages = `--sql b0e9a9de-57cc-42c1-b6ed-fcb6b4a29d8f
select id::text, session_id::text, user_id, role, content, image_ref, seq, created_at, updated_at
from messages
where session_id = $1::uuid
order by created_at desc, seq desc
limit $2::int;
`

const QListMessages = `--sql 49814947-4b04-4c34-9dec-43d04f5af270
select id::text, session_id::text, user_id, role, content, image_ref, seq, created_at, updated_at
from messages
where session_id = $1::uuid
order by created_at asc, seq asc;
`

const QUpdateUserMessage = `--sql b5a461ea-8125-49d0-8169-8b8f5c5bb8e3
update messages
set content = $2::text,
    updated_at = $3::timestamptz
where id = $1::uuid
  and role = 'user';
`

const QDeleteUserMessage = `--sql 5c2dd8cc-ef53-4de6-bec5-386d6dd56389
delete from messages
where id = $1::uuid
  and role = 'user';
`
