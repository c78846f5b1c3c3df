package redis

const (
	// saveRecordScript atomically writes a usage record and its indexes.
	// ARGV[10] is "new" (fails if the record exists) or "modified" (fails if
	// it does not).
	saveRecordScript = `
local record_key = KEYS[1]     -- activityd:record:{id}
local all_index = KEYS[2]      -- activityd:usage:all
local user_index = KEYS[3]     -- activityd:usage:user:{userID}
local closed_index = KEYS[4]   -- activityd:usage:closed

local id = ARGV[1]
local start_score = ARGV[8]
local end_score = ARGV[9]
local mode = ARGV[10]

local exists = redis.call('EXISTS', record_key)
if mode == 'new' and exists == 1 then
  return 'CONFLICT'
end
if mode == 'modified' and exists == 0 then
  return 'NOTFOUND'
end

redis.call('HSET', record_key,
  'id', id,
  'user_id', ARGV[2],
  'category', ARGV[3],
  'start', ARGV[4],
  'end', ARGV[5],
  'current', ARGV[6],
  'login_id', ARGV[7]
)

redis.call('ZADD', all_index, start_score, id)
redis.call('ZADD', user_index, start_score, id)

-- Only closed records are candidates for pruning
if ARGV[6] == '0' and end_score ~= '' then
  redis.call('ZADD', closed_index, end_score, id)
else
  redis.call('ZREM', closed_index, id)
end

return 'OK'
`

	// pruneClosedScript deletes closed records that ended before ARGV[1]
	// and removes them from every index.
	pruneClosedScript = `
local closed_index = KEYS[1]   -- activityd:usage:closed
local all_index = KEYS[2]      -- activityd:usage:all

local cutoff = ARGV[1]
local record_prefix = ARGV[2]
local user_prefix = ARGV[3]

local ids = redis.call('ZRANGEBYSCORE', closed_index, '-inf', '(' .. cutoff)
for _, id in ipairs(ids) do
  local record_key = record_prefix .. id
  local user_id = redis.call('HGET', record_key, 'user_id')
  if user_id then
    redis.call('ZREM', user_prefix .. user_id, id)
  end
  redis.call('DEL', record_key)
  redis.call('ZREM', all_index, id)
  redis.call('ZREM', closed_index, id)
end

return #ids
`
)
