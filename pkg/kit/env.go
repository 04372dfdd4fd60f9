package kit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func Getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func GetenvInt(k string, def int) int {
	n, err := strconv.Atoi(Getenv(k, ""))
	if err != nil {
		return def
	}
	return n
}

func GetenvBool(k string, def bool) bool {
	b, err := strconv.ParseBool(Getenv(k, ""))
	if err != nil {
		return def
	}
	return b
}

func GetenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(Getenv(k, ""))
	if err != nil {
		return def
	}
	return d
}
