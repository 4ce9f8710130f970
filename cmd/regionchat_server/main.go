package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regionchat_server/internal/config"
	"regionchat_server/internal/dao/mongodb"
	dao "regionchat_server/internal/dao/mysql"
	"regionchat_server/internal/dao/mysql/repository"
	myredis "regionchat_server/internal/dao/redis"
	"regionchat_server/internal/handler"
	"regionchat_server/internal/https_server"
	"regionchat_server/internal/infrastructure/logger"
	"regionchat_server/internal/infrastructure/mq"
	"regionchat_server/internal/region"
	"regionchat_server/internal/service"
	"regionchat_server/internal/service/listcache"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/util/jwt"
	"regionchat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

// startupTimeout 连接各个后端的总超时
const startupTimeout = 30 * time.Second

func main() {
	// 1. 加载配置
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功")

	// 3. 雪花 ID 与 JWT
	if err := snowflake.Init(conf.SnowflakeConfig.MachineID); err != nil {
		zap.L().Warn("雪花节点初始化失败，使用默认节点", zap.Error(err))
	}
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.Issuer, 0)
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("初始化参数校验翻译失败", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// 4. 按分区表连接用到的后端
	kinds := make(map[store.Kind]*store.Backend, 2)
	checks := make(map[string]handler.HealthCheck)
	var closers []func(context.Context) error
	for _, kind := range []string{conf.RegionConfig.CN, conf.RegionConfig.Global} {
		switch k := store.Kind(kind); k {
		case store.KindRelational:
			if kinds[k] != nil {
				continue
			}
			db, err := dao.Open(&conf.MysqlConfig)
			if err != nil {
				zap.L().Fatal("数据库初始化失败", zap.Error(err))
			}
			kinds[k] = repository.NewRepositories(db).Backend()
			sqlDB, err := db.DB()
			if err != nil {
				zap.L().Fatal("获取数据库连接池失败", zap.Error(err))
			}
			checks["mysql"] = sqlDB.PingContext
			closers = append(closers, func(context.Context) error { return sqlDB.Close() })
			zap.L().Info("数据库初始化成功")
		case store.KindDocument:
			if kinds[k] != nil {
				continue
			}
			docs, err := mongodb.Connect(ctx, &conf.MongoConfig)
			if err != nil {
				zap.L().Fatal("MongoDB 初始化失败", zap.Error(err))
			}
			kinds[k] = docs.Backend()
			checks["mongodb"] = docs.Ping
			closers = append(closers, docs.Close)
			zap.L().Info("MongoDB 初始化成功")
		default:
			zap.L().Fatal("未知的后端类型", zap.String("kind", kind))
		}
	}

	// 5. Redis 不可用时不缓存会话列表，不影响正确性
	var lists *listcache.Cache
	cache, err := myredis.Init(ctx, &conf.RedisConfig)
	if err != nil {
		zap.L().Warn("Redis 初始化失败，会话列表缓存关闭", zap.Error(err))
	} else {
		lists = listcache.New(cache, conf.ResolverConfig.ListCacheTTL)
		checks["redis"] = cache.Ping
		zap.L().Info("Redis 初始化成功")
	}

	// 6. 关系事件
	publisher := mq.NewPublisher(&conf.KafkaConfig)

	// 7. 分区路由与 Service 层
	regions, err := region.NewRouter(&conf.RegionConfig, kinds, conf.ResolverConfig.Attempts)
	if err != nil {
		zap.L().Fatal("分区路由初始化失败", zap.Error(err))
	}
	svc := service.NewServices(service.Deps{
		Router:    regions,
		Lists:     lists,
		Publisher: publisher,
		Attempts:  conf.ResolverConfig.Attempts,
	})
	handlers := handler.NewHandlers(svc, checks)

	// 8. 启动 HTTP 服务
	engine := https_server.Init(conf, handlers, regions)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zap.L().Info("HTTP 服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP 服务关闭失败", zap.Error(err))
	}
	// 先停 HTTP 再关缓存 worker，保证已提交的缓存任务执行完
	if cache != nil {
		if err := cache.Close(); err != nil {
			zap.L().Error("Redis 关闭失败", zap.Error(err))
		}
	}
	if err := publisher.Close(); err != nil {
		zap.L().Error("事件发布器关闭失败", zap.Error(err))
	}
	for _, closeFn := range closers {
		if err := closeFn(shutdownCtx); err != nil {
			zap.L().Error("后端连接关闭失败", zap.Error(err))
		}
	}

	zap.L().Info("服务器已关闭")
	_ = zap.L().Sync()
}
