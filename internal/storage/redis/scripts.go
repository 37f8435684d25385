package redis

const (
	// saveSessionScript atomically writes a session record and its open index
	saveSessionScript = `
local session_key = KEYS[1]     -- worktimer:session:{userID}
local open_set = KEYS[2]        -- worktimer:sessions:open

local user_id = ARGV[1]

redis.call('HSET', session_key,
  'attendance_id', ARGV[2],
  'user_id', user_id,
  'check_in', ARGV[3],
  'work_location', ARGV[4],
  'status', ARGV[5],
  'last_status_change', ARGV[6],
  'updated_at', ARGV[7]
)
redis.call('SADD', open_set, user_id)

return 'OK'
`

	// deleteSessionScript atomically removes a session record and its open index entry
	deleteSessionScript = `
local session_key = KEYS[1]     -- worktimer:session:{userID}
local open_set = KEYS[2]        -- worktimer:sessions:open

redis.call('DEL', session_key)
redis.call('SREM', open_set, ARGV[1])

return 'OK'
`

	// incrementDailyScript atomically increments or creates a user's daily totals
	incrementDailyScript = `
local daily_key = KEYS[1]     -- worktimer:history:daily:{date}:{userID}
local index_key = KEYS[2]     -- worktimer:history:daily:index:{date}
local dates_set = KEYS[3]     -- worktimer:history:dates

local date = ARGV[1]
local user_id = ARGV[2]
local online = tonumber(ARGV[3])
local offline = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

if redis.call('EXISTS', daily_key) == 0 then
  redis.call('HSET', daily_key,
    'date', date,
    'user_id', user_id,
    'online_seconds', online,
    'offline_seconds', offline,
    'sessions', 1
  )
else
  redis.call('HINCRBY', daily_key, 'online_seconds', online)
  redis.call('HINCRBY', daily_key, 'offline_seconds', offline)
  redis.call('HINCRBY', daily_key, 'sessions', 1)
end

redis.call('SADD', index_key, user_id)
redis.call('SADD', dates_set, date)

if ttl_seconds > 0 then
  redis.call('EXPIRE', daily_key, ttl_seconds)
  redis.call('EXPIRE', index_key, ttl_seconds)
end

return 'OK'
`
)
