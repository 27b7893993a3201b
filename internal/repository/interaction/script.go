package interaction

import "github.com/kailas-cloud/tradematch/internal/db"

// applyBody mutates one (member, category) row and recomputes its total.
//
//	KEYS[1] score hash, KEYS[2] member category set
//	ARGV[1] type, ARGV[2] view weight, ARGV[3] like weight, ARGV[4] category, ARGV[5] member id
//
// Replies {view_count, like_count, total_score} as strings.
const applyBody = `
local kind = ARGV[1]
local views = tonumber(redis.call('HGET', KEYS[1], 'view_count') or '0')
local likes = tonumber(redis.call('HGET', KEYS[1], 'like_count') or '0')
if kind == 'VIEW' then
  views = views + 1
elseif kind == 'LIKE' then
  likes = likes + 1
elseif kind == 'UNLIKE' then
  if likes > 0 then likes = likes - 1 end
else
  return redis.error_reply('unknown interaction type ' .. kind)
end
local total = views * tonumber(ARGV[2]) + likes * tonumber(ARGV[3])
redis.call('HSET', KEYS[1],
  'member_id', ARGV[5],
  'category', ARGV[4],
  'view_count', tostring(views),
  'like_count', tostring(likes),
  'total_score', tostring(total))
redis.call('SADD', KEYS[2], ARGV[4])
return {tostring(views), tostring(likes), tostring(total)}
`

var applyScript = db.Script{
	Name:   "interaction_apply",
	Source: applyBody,
}

// viewScript records the daily view marker and counts the view in one step.
// KEYS and ARGV extend applyBody with KEYS[3] view marker and ARGV[6] marker
// TTL in milliseconds. Replies an empty array when the marker already exists.
var viewScript = db.Script{
	Name: "interaction_view",
	Source: `
if not redis.call('SET', KEYS[3], '1', 'NX', 'PX', ARGV[6]) then
  return {}
end
` + applyBody,
}
