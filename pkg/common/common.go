package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/gommon/random"
	"golang.org/x/crypto/pbkdf2"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a cluster-unique int64 identifier.
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}

// UUID returns a cluster-unique identifier string.
func UUID() string {
	return snowflakeNode.Generate().String()
}

// GetSecretSalt reads the secret salt from the environment, falling back to a
// fixed development value.
func GetSecretSalt() string {
	if salt := os.Getenv("SALONBOOK_SECRET"); salt != "" {
		return salt
	}
	return "salonbook-secret"
}

// Sha256HashWithSalt derives a password hash with PBKDF2-SHA256.
func Sha256HashWithSalt(src string, salt string) string {
	dk := pbkdf2.Key([]byte(src), []byte(salt), 4096, 32, sha256.New)
	return hex.EncodeToString(dk)
}

// RandomSecret returns a random alphanumeric secret of the given length.
func RandomSecret(length uint8) string {
	return random.String(length, random.Alphanumeric)
}

// FileExists tests whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
