package sqlinline

const QInsertImageJob = `--sql de084e50-67c0-4538-8b55-f94daf4133bc
insert into image_jobs (
  id, batch_key, pages, status, progress, total_images, grade_level, created_at, updated_at
)
values ($1, $2, $3::jsonb, 'pending', 0, $4, $5, $6, $6)
returning id, batch_key, pages, status, progress, failed_images, total_images, grade_level, error_message, created_at, updated_at, completed_at;
`

// QUpdateImageJob leaves a column untouched when its parameter is null.
const QUpdateImageJob = `--sql 86ff6b6d-8111-421f-9629-269143fda634
update image_jobs
set status = coalesce($2::text, status),
    progress = coalesce($3::int, progress),
    failed_images = coalesce($7::int, failed_images),
    error_message = coalesce($4::text, error_message),
    completed_at = coalesce($5::timestamptz, completed_at),
    updated_at = $6
where id = $1;
`

const QGetImageJob = `--sql 4688c7c7-02d1-4f9e-9f63-d3721e6f7d3e
select id, batch_key, pages, status, progress, failed_images, total_images, grade_level, error_message, created_at, updated_at, completed_at
from image_jobs
where id = $1;
`

const QGetLatestImageJobForBatch = `--sql fa237d33-c139-4227-9381-c5afaa169f8f
select id, batch_key, pages, status, progress, failed_images, total_images, grade_level, error_message, created_at, updated_at, completed_at
from image_jobs
where batch_key = $1
order by created_at desc, id desc
limit 1;
`
