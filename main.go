package main

import (
	"context"
	"strconv"

	"nanohost/storage-api/api"
	"nanohost/storage-api/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	a, err := api.NewRouter()
	if err != nil {
		panic(err)
	}

	if config.RebuildAdIndex() {
		zap.L().Info("Rebuilding advertisement index from the ledger")

		if err := a.Advertiser.RebuildIndex(context.Background()); err != nil {
			zap.L().Error("Advertisement index rebuild failed", zap.Error(err))
		}
	}

	zap.L().Info("Server starting")

	err = a.Router.Run(":" + strconv.Itoa(viper.GetInt("host.port")))
	if err != nil {
		panic(err)
	}
}
