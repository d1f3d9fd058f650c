package liquiddb

import (
	"github.com/dep2p/go-liquiddb/config"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设配置常量
// ════════════════════════════════════════════════════════════════════════════

// 预设名称常量
const (
	// PresetDefault 默认预设
	PresetDefault = "default"

	// PresetFast 本地/测试环境：短握手与心跳超时、快速重连
	PresetFast = "fast"

	// PresetPatient 移动或高延迟网络：长心跳超时、慢退避
	PresetPatient = "patient"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设配置获取
// ════════════════════════════════════════════════════════════════════════════

// PresetConfig 返回应用了指定预设的默认配置
//
// 示例：
//
//	cfg, err := liquiddb.PresetConfig(liquiddb.PresetFast)
//	cfg.Address = "ws://db.local/db"
//	db, err := liquiddb.New(liquiddb.WithConfig(cfg))
func PresetConfig(name string) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := config.ApplyPreset(cfg, name); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PresetNames 返回所有预设名称
func PresetNames() []string {
	return []string{PresetDefault, PresetFast, PresetPatient}
}
