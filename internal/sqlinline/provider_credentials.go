package sqlinline

// QSelectProviderCredential reads the stored key for a chat provider along
// with the model and endpoint it was registered for.
const QSelectProviderCredential = `--sql 4a06344f-317c-4953-a852-b474577bb7d0
select
  token,
  coalesce(properties->>'model', '') as model,
  coalesce(properties->>'base_url', '') as base_url,
  updated_at
from integration_tokens
where provider = $1::text
  and token <> '';
`

// QUpsertProviderCredential replaces the key and merges new properties into
// the existing ones.
const QUpsertProviderCredential = `--sql 86f1d6ca-c742-42a1-a552-7380bacd220c
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
  token = excluded.token,
  properties = integration_tokens.properties || excluded.properties,
  updated_at = now()
returning updated_at;
`
