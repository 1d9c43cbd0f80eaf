package sqlinline

const QEnsureUsageLedger = `--sql c30c8988-635f-4fb7-9b31-876be947d584
insert into usage_ledgers (user_id, usage_count, reset_at, updated_at)
values ($1::text, 0, null, $2::timestamptz)
on conflict (user_id) do nothing;
`

// QConsumeUsageLedger locks the ledger row, rolls an expired window, and
// debits one unit when the limit allows, all in one statement.
const QConsumeUsageLedger = `--sql da5f0847-cfb2-4376-a399-55dbce87b69c
with
input as (
  select
    $1::text        as user_id,
    $2::timestamptz as now_at,
    $3::timestamptz as next_reset,
    $4::int         as usage_limit
),
locked as (
  select l.user_id, l.usage_count, l.reset_at
  from usage_ledgers l
  where l.user_id = (select user_id from input)
  for update
),
rolled as (
  select
    k.user_id,
    i.now_at,
    i.next_reset,
    i.usage_limit,
    (i.next_reset is not null and k.reset_at is not null and k.reset_at < i.now_at) as rolled,
    case
      when i.next_reset is not null and k.reset_at is not null and k.reset_at < i.now_at then 0
      else k.usage_count
    end as base_count
  from locked k
  cross join input i
),
decision as (
  select r.*, (r.usage_limit is null or r.base_count < r.usage_limit) as admitted
  from rolled r
)
update usage_ledgers l
set usage_count = d.base_count + case when d.admitted then 1 else 0 end,
    reset_at = case
      when d.rolled then d.next_reset
      when d.admitted and l.reset_at is null then d.next_reset
      else l.reset_at
    end,
    updated_at = case when d.admitted or d.rolled then d.now_at else l.updated_at end
from decision d
where l.user_id = d.user_id
returning l.usage_count, l.reset_at, d.admitted, d.rolled;
`

const QSelectUsageLedger = `--sql f4ba74e2-41da-4e1e-90f1-b0605ee05164
select usage_count, reset_at, updated_at
from usage_ledgers
where user_id = $1::text;
`

const QResetUsageLedger = `--sql 8776fc25-b292-4926-8ceb-f44abe432b3a
insert into usage_ledgers (user_id, usage_count, reset_at, updated_at)
values ($1::text, 0, null, now())
on conflict (user_id) do update set
    usage_count = 0,
    reset_at = null,
    updated_at = now();
`
