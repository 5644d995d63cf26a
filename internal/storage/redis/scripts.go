package redis

const (
	// upsertUserScript replaces a user record and registers it in the user index
	// in a single atomic step, so readers never see a half-written hash.
	upsertUserScript = `
local user_key = KEYS[1]     -- voicetally:user:{userID}
local index_key = KEYS[2]    -- voicetally:users

local user_id = ARGV[1]
local display_name = ARGV[2]
local session_start = ARGV[3]
local active = ARGV[4]

-- Replace the whole record, dropping month fields that are no longer present
redis.call('DEL', user_key)
redis.call('HSET', user_key,
  'user_id', user_id,
  'display_name', display_name,
  'session_start', session_start,
  'active', active
)

-- Remaining arguments are month/seconds pairs
for i = 5, #ARGV, 2 do
  redis.call('HSET', user_key, 'month:' .. ARGV[i], ARGV[i + 1])
end

redis.call('SADD', index_key, user_id)

return 'OK'
`
)
