// Command simplepos is the operator CLI for a till.
//
//	simplepos serve                   # boot plugins and serve the bridge
//	simplepos migrate                 # run migrations
//	simplepos migrate:rollback
//	simplepos migrate:status
//	simplepos seed
//	simplepos print --test            # print a test page
//	simplepos backup --encrypt        # snapshot the database
//	simplepos backup:restore <path>
//	simplepos token <client>          # issue a bridge token
//	simplepos update:check
//	simplepos route:list
//	simplepos version
//
// --profile (or APP_PROFILE) picks the native or bistro build.
package main
