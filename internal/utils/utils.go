package utils

import (
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

// RetryLogger bridges go-retryablehttp's leveled logger to logrus.
// Retry chatter is demoted to debug so normal runs stay quiet.
type RetryLogger struct {
	L *logrus.Logger
}

func (r RetryLogger) Error(msg string, kv ...interface{}) { r.entry(kv).Warn(msg) }
func (r RetryLogger) Warn(msg string, kv ...interface{})  { r.entry(kv).Debug(msg) }
func (r RetryLogger) Info(msg string, kv ...interface{})  { r.entry(kv).Debug(msg) }
func (r RetryLogger) Debug(msg string, kv ...interface{}) { r.entry(kv).Debug(msg) }

func (r RetryLogger) entry(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return r.L.WithFields(fields)
}

// MB converts a byte count to megabytes rounded to the given number of decimals.
func MB(bytes int64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(float64(bytes)/(1024*1024)*p) / p
}
