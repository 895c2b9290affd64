package wire

import (
	"Parley/internal/api"
	"Parley/internal/api/config"
	"Parley/internal/api/handler"
	"Parley/internal/job"
	"Parley/internal/pkg/bus"
	"Parley/internal/pkg/cron"
	"Parley/internal/pkg/es"
	"Parley/internal/pkg/kafka"
	pmongo "Parley/internal/pkg/mongo"
	"Parley/internal/pkg/redis"
	"Parley/internal/repository"
	"Parley/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager

	bus        bus.Bus
	dispatcher service.Dispatcher
	auditor    service.CallAuditor
}

// BuildApplication mongoDB 为 nil 时不记录通话审计；ES 未初始化时检索不可用且不启动 Kafka 消费
func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	callRepo := repository.NewCallRepo(db)
	userFollowRepo := repository.NewUserFollowRepo(db)

	pushBus, err := newBus(cfg.Fanout)
	if err != nil {
		return nil, err
	}

	dispatcher := service.NewDispatcher(pushBus, service.NewPresenceReader(), cfg.Fanout)
	presenceSvc := service.NewPresenceService(cfg.Presence, dispatcher)

	gate := service.NewRelationshipGate(cfg.Relationship, userFollowRepo)
	conversationSvc := service.NewConversationService(convRepo, gate, dispatcher)
	members := service.GuardMembership(conversationSvc, cfg.Relationship.Timeout())

	var searchRepo es.MessageRepo
	if es.Client != nil {
		searchRepo = es.NewMessageRepo(es.Client)
	}
	messageSvc := service.NewMessageService(convRepo, messageRepo, members, searchRepo, dispatcher, cfg.Message)

	auditor := newAuditor(mongoDB)
	callSvc := service.NewCallService(callRepo, convRepo, gate, members, dispatcher, auditor, cfg.Call, cfg.WebRTC)
	relationSvc := service.NewRelationService(userFollowRepo)

	handlers := &api.HandlersGroup{
		ConversationHandler: handler.NewConversationHandler(conversationSvc),
		MessageHandler:      handler.NewMessageHandler(messageSvc),
		CallHandler:         handler.NewCallHandler(callSvc),
		RelationHandler:     handler.NewRelationHandler(relationSvc),
		PresenceHandler:     handler.NewPresenceHandler(presenceSvc),
		WSHandler:           handler.NewWsHandler(pushBus, presenceSvc, conversationSvc, callSvc),
	}

	router := api.SetupRouter(handlers, cfg.Server.AllowOrigins)

	cronMgr := cron.NewCronManager(job.NewCallTimeoutJob(callSvc), cfg.Call.SweepSpec)

	var kafkaMgr *kafka.ConsumerManager
	if len(cfg.Kafka.Brokers) > 0 && searchRepo != nil {
		kafkaMgr, err = kafka.NewConsumerManager(cfg, searchRepo)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("Kafka consumers disabled", "brokers", len(cfg.Kafka.Brokers), "search", searchRepo != nil)
	}

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
		bus:          pushBus,
		dispatcher:   dispatcher,
		auditor:      auditor,
	}, nil
}

// Close 先停推送再关总线
func (a *ApplicationContainer) Close() {
	a.dispatcher.Close()
	a.auditor.Close()
	if err := a.bus.Close(); err != nil {
		log.Error("close push bus failed", "err", err)
	}
}

func newBus(cfg config.FanoutConfig) (bus.Bus, error) {
	switch cfg.Transport {
	case "nats":
		return bus.NewNatsBus(cfg.NatsURL)
	default:
		return bus.NewRedisBus(redis.Rdb), nil
	}
}

func newAuditor(mongoDB *mongo.Database) service.CallAuditor {
	if mongoDB == nil {
		return service.NewNopCallAuditor()
	}
	repo := pmongo.NewCallEventRepo(mongoDB)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Warn("ensure call_events indexes failed", "err", err)
	}
	return service.NewCallAuditor(repo)
}
