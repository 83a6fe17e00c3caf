package common

import (
	"encoding/base64"
	"math/rand"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

// UUIDint64 returns a process-unique int64 id.
func UUIDint64() int64 {
	snowflakeOnce.Do(func() {
		node, err := snowflake.NewNode(rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1023))
		if err != nil {
			node, _ = snowflake.NewNode(1)
		}
		snowflakeNode = node
	})
	return snowflakeNode.Generate().Int64()
}

// BasicAuthorization builds the Authorization header value for the external API.
func BasicAuthorization(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
