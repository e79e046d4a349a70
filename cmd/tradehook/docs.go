package main

//go:generate swag init -g cmd/tradehook/main.go -o docs

// @title           Tradehook API
// @version         0.1.0
// @description     Webhook signal execution: strategies, owners, cooldowns and broker order routing.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
