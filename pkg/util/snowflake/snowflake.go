// Package snowflake 生成全局有序的事件 ID
package snowflake

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
)

// Init 初始化雪花算法节点
// 应在程序启动时调用一次，重复调用无效
func Init(machineID int64) error {
	var err error
	nodeOnce.Do(func() {
		if machineID < 0 || machineID > 1023 {
			zap.L().Warn("Invalid MachineID in config, using default value 1", zap.Int64("machineID", machineID))
			machineID = 1
		}
		node, err = snowflake.NewNode(machineID)
		if err != nil {
			err = fmt.Errorf("init snowflake node: %w", err)
			return
		}
		zap.L().Info("Snowflake node initialized", zap.Int64("machineID", machineID))
	})
	return err
}

// GenerateIDString 生成雪花 ID (string)
// 用于 JSON 序列化，避免 JavaScript 精度丢失
// 未初始化时使用节点 1
func GenerateIDString() string {
	if node == nil {
		_ = Init(1)
	}
	return node.Generate().String()
}
