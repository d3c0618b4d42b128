package memorystore

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

/*DefaultPool - the default redis pool against a service (host) named redis */
var DefaultPool *redis.Pool

/*NewPool - create a new redis pool accessible at the given address */
func NewPool(host string, port int) *redis.Pool {
	var address string
	if host != "" {
		address = fmt.Sprintf("%v:%v", host, port)
	} else {
		address = fmt.Sprintf(":%v", port)
	}
	return &redis.Pool{
		MaxIdle:     80,
		MaxActive:   1000, // max number of connections
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
	}
}

/*InitDefaultPool - initialize the default redis pool */
func InitDefaultPool(host string, port int) {
	DefaultPool = NewPool(host, port)
}
