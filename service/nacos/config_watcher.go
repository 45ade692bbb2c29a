package nacos

import (
	"context"

	"PPSignal/global/config"
	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// WatchRelay 拉取一次远端配置并持续监听，变化时交给 w 应用 relay 段。
// It returns once the listener is registered; the listener is cancelled
// when ctx is done.
func WatchRelay(ctx context.Context, client config_client.IConfigClient, cfg config.NacosConfig, w *config.Watcher) error {
	content, err := client.GetConfig(vo.ConfigParam{
		DataId: cfg.DataID,
		Group:  cfg.Group,
	})
	if err != nil {
		return errs.WrapMsg(err, "get nacos config", "data_id", cfg.DataID, "group", cfg.Group)
	}
	if content != "" {
		w.ApplyBytes([]byte(content))
	}

	// 开始监听
	err = client.ListenConfig(vo.ConfigParam{
		DataId: cfg.DataID,
		Group:  cfg.Group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("nacos config changed", zap.String("data_id", dataId), zap.String("group", group))
			w.ApplyBytes([]byte(data))
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "listen nacos config", "data_id", cfg.DataID)
	}

	go func() {
		<-ctx.Done()
		if err := client.CancelListenConfig(vo.ConfigParam{DataId: cfg.DataID, Group: cfg.Group}); err != nil {
			logger.Warn("nacos cancel listen failed", zap.Error(err))
		}
		client.CloseClient()
	}()
	return nil
}
