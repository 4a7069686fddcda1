package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/snapbooth/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	mergeBaseUrl = configVar[string]{
		envKey:       "MERGE_BASE_URL",
		flagKey:      "merge-base-url",
		defaultValue: "http://localhost:8090",
	}
	roomCodeLength = configVar[int]{
		envKey:       "SERVER_ROOM_CODE_LENGTH",
		flagKey:      "room-code-length",
		defaultValue: 6,
	}
	countdownFrom = configVar[int]{
		envKey:       "SERVER_COUNTDOWN_FROM",
		flagKey:      "countdown-from",
		defaultValue: 3,
	}
	countdownInterval = configVar[time.Duration]{
		envKey:       "SERVER_COUNTDOWN_INTERVAL",
		flagKey:      "countdown-interval",
		defaultValue: time.Second,
	}
	roomExpire = configVar[time.Duration]{
		envKey:       "SERVER_ROOM_EXPIRE",
		flagKey:      "room-expire",
		defaultValue: 2 * time.Hour,
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.String(mergeBaseUrl.flagKey, mergeBaseUrl.defaultValue, "Merge service base url")
	pflag.Int(roomCodeLength.flagKey, roomCodeLength.defaultValue, "Length of generated room codes")
	pflag.Int(countdownFrom.flagKey, countdownFrom.defaultValue, "Countdown start value")
	pflag.Duration(countdownInterval.flagKey, countdownInterval.defaultValue, "Delay between countdown ticks")
	pflag.Duration(roomExpire.flagKey, roomExpire.defaultValue, "Idle room expiration")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)
	viper.BindEnv(mergeBaseUrl.flagKey, mergeBaseUrl.envKey)
	viper.BindEnv(roomCodeLength.flagKey, roomCodeLength.envKey)
	viper.BindEnv(countdownFrom.flagKey, countdownFrom.envKey)
	viper.BindEnv(countdownInterval.flagKey, countdownInterval.envKey)
	viper.BindEnv(roomExpire.flagKey, roomExpire.envKey)

	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)
	viper.SetDefault(mergeBaseUrl.flagKey, mergeBaseUrl.defaultValue)
	viper.SetDefault(roomCodeLength.flagKey, roomCodeLength.defaultValue)
	viper.SetDefault(countdownFrom.flagKey, countdownFrom.defaultValue)
	viper.SetDefault(countdownInterval.flagKey, countdownInterval.defaultValue)
	viper.SetDefault(roomExpire.flagKey, roomExpire.defaultValue)

	config := &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
		MergeBaseUrl:      viper.GetString(mergeBaseUrl.flagKey),
		RoomCodeLength:    viper.GetInt(roomCodeLength.flagKey),
		CountdownFrom:     viper.GetInt(countdownFrom.flagKey),
		CountdownInterval: viper.GetDuration(countdownInterval.flagKey),
		RoomExpire:        viper.GetDuration(roomExpire.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	log.Fatal(app.Run(ctx, appConfig))
}
