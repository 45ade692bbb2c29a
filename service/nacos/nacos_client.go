package nacos

import (
	"PPSignal/global/config"
	"PPSignal/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

func NewConfigClient(cfg config.NacosConfig) (config_client.IConfigClient, error) {
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(cfg),
		ServerConfigs: serverConfig(cfg),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "host", cfg.Host)
	}
	return client, nil
}

func NewNamingClient(cfg config.NacosConfig) (naming_client.INamingClient, error) {
	client, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(cfg),
		ServerConfigs: serverConfig(cfg),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos naming client", "host", cfg.Host)
	}
	return client, nil
}

func serverConfig(cfg config.NacosConfig) []constant.ServerConfig {
	return []constant.ServerConfig{
		*constant.NewServerConfig(cfg.Host, cfg.Port),
	}
}

func clientConfig(cfg config.NacosConfig) *constant.ClientConfig {
	return constant.NewClientConfig(
		constant.WithNamespaceId(cfg.Namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
		constant.WithCacheDir(cfg.CacheDir),
		constant.WithLogDir(cfg.LogDir),
	)
}
