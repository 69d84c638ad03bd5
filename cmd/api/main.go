package main

import (
	"log"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraGateway "app/internal/infra/gateway"
	"app/internal/infra/metrics"
	infraRepo "app/internal/infra/repository"
	"app/internal/rbac"
	"app/internal/server"
	"app/internal/usecase"

	"github.com/joho/godotenv"
)

func main() {
	//.envはローカル用。無くても環境変数があれば動く
	_ = godotenv.Load("../.env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Listing{},
		&model.Order{},
		&model.WebhookEvent{},
		&model.AuditLog{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenGormRepository(gormDB)
	listingRepo := infraRepo.NewListingGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	webhookRepo := infraRepo.NewWebhookEventGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//決済ゲートウェイ
	gw := infraGateway.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.WebhookSecret)

	//メトリクス・権限チェック
	m := metrics.NewEscrowMetrics()
	checker := rbac.NewRoleChecker(userRepo)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, rtRepo, cfg)
	listingUC := usecase.NewListingUsecase(listingRepo)
	orderUC := usecase.NewOrderUsecase(txManager)
	escrowUC := usecase.NewEscrowUsecase(txManager, auditRepo, m)
	webhookUC := usecase.NewWebhookUsecase(escrowUC, gw, webhookRepo, m)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, auditRepo, checker, gw, cfg.FeeBasisPoints, m)

	//Handler生成
	h := server.Handlers{
		Auth:       handler.NewAuthHandler(authUC, usecase.RefreshTokenTTL),
		Listing:    handler.NewListingHandler(listingUC),
		Order:      handler.NewOrderHandler(orderUC, escrowUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
		Webhook:    handler.NewWebhookHandler(webhookUC),
	}

	//Server起動
	e := server.New(cfg, h, userRepo)
	if err := server.Start(e, cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
