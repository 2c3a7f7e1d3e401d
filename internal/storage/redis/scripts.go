package redis

const (
	// patchLastEndScript replaces the end column of the newest session line
	// in one step, so readers never observe a half-written value.
	patchLastEndScript = `
local list_key = KEYS[1]     -- ttw:sessions
local end_ms = ARGV[1]

local last = redis.call('LINDEX', list_key, -1)
if not last then
  return redis.error_reply('NOTFOUND session log is empty')
end

local _, tabs = string.gsub(last, '\t', '\t')
if tabs ~= 3 then
  return redis.error_reply('CORRUPT last session has ' .. (tabs + 1) .. ' columns')
end

local idx = string.find(last, '\t[^\t]*$')
local patched = string.sub(last, 1, idx) .. end_ms
redis.call('LSET', list_key, -1, patched)

return patched
`
)
