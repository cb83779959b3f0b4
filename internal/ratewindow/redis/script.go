package rwredis

import "github.com/go-redis/redis/v8"

// checkAndRecordScript keeps the window as a ZSET of event timestamps scored
// in milliseconds. Prune, inspect and append happen in one script, so the
// check-then-record step is atomic across replicas. Nothing is added when
// the check fails.
var checkAndRecordScript = redis.NewScript(`
local key = KEYS[1] -- window key, e.g. "price_report:1.2.3.4"
local now = tonumber(ARGV[1]) -- current time in milliseconds
local windowMillis = tonumber(ARGV[2]) -- window size in milliseconds
local limit = tonumber(ARGV[3]) -- maximum events per window
local member = ARGV[4] -- unique member for this event

-- Drop events older than the window.
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - windowMillis)

local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    -- Expire idle windows; one extra window of slack for clock skew.
    redis.call('PEXPIRE', key, windowMillis * 2)
    return {1, count}
end

return {0, count}
`)
