package sqlinline

const QLookupCachedImage = `--sql da9d8123-9bee-42a7-99c8-be1bc034bcc9
update story_image_cache
set usage_count = usage_count + 1,
    last_used_at = now()
where prompt_hash = $1
returning image_data, image_type;
`

const QUpsertCachedImage = `--sql 4eb945b6-a1dc-4108-ad61-bf22fd40303a
insert into story_image_cache (prompt_hash, image_data, image_type, usage_count, created_at, last_used_at)
values ($1, $2, $3, 1, now(), now())
on conflict (prompt_hash) do update
set image_data = excluded.image_data,
    image_type = excluded.image_type,
    last_used_at = now();
`
