package socketio

import (
	"context"
	"time"

	"social-realtime/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"
)

var socketLog = log.NewLog("realtime:socket")

type Options struct {
	// Redis backs the adapter that shares rooms between nodes. Nil keeps
	// rooms in memory.
	Redis       *redis.Client
	CorsOrigin  string
	TokenSecret []byte
	RequireAuth bool
}

// Init mounts the socket.io server on app.
func Init(app *fiber.App, opts Options) *socket.Server {
	options := socket.DefaultServerOptions()
	options.SetServeClient(false)
	options.SetAllowEIO3(true)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetMaxHttpBufferSize(1_000_000)
	options.SetConnectTimeout(45 * time.Second)
	if opts.CorsOrigin != "" {
		options.SetCors(&types.Cors{
			Origin:      opts.CorsOrigin,
			Credentials: true,
		})
	}
	if opts.Redis != nil {
		options.SetAdapter(&adapter.RedisAdapterBuilder{
			Redis: r_type.NewRedisClient(context.Background(), opts.Redis),
			Opts:  &adapter.RedisAdapterOptions{},
		})
	}

	server := socket.NewServer(nil, options)
	server.Use(Authenticate(opts.TokenSecret, opts.RequireAuth))

	handler := adaptor.HTTPHandler(server.ServeHandler(options))
	app.Get("/socket.io/", handler)
	app.Post("/socket.io/", handler)

	return server
}

// Authenticate attaches the claims of the optional ?token= query parameter
// to the socket. Tokens still waiting for their second factor are ignored.
func Authenticate(secret []byte, required bool) func(*socket.Socket, func(*socket.ExtendedError)) {
	return func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, present := client.Conn().Request().Query().Get("token")

		if present && token != "" {
			claims, err := utils.CheckAndExtractTokenMetadata(token, secret)
			if err == nil && !claims.Otp {
				client.SetData(claims)
				next(nil)
				return
			}
			socketLog.Debug("socket %s presented an unusable token: %v", client.Id(), err)
		}

		if required {
			next(socket.NewExtendedError("unauthorized", nil))
			return
		}
		next(nil)
	}
}
