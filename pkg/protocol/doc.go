// Package protocol 定义 LiquidDB 线上消息格式
//
// 本包是客户端与服务端之间消息格式的单一真相源 (Single Source of Truth)。
// 所有模块应从此包引用消息类型常量与编解码函数，而不是自行拼接 JSON。
//
// # 消息信封
//
// 每条消息是一个 JSON 对象（一个 websocket 文本帧）：
//
//	{ "type": "...", "id": "...", "path": ["foo","bar"],
//	  "value": <json>, "exists": true, "operation": "update", "error": "..." }
//
// 信封由 github.com/goccy/go-json 编解码；value 字段使用 protojson
// 对 structpb.Value 编解码。
//
// # 消息类型
//
//   - ready  (s→c) 就绪握手，value/exists 携带整树快照
//   - ping   (s→c) 心跳
//   - pong   (c→s) 心跳应答
//   - set    (c→s) 在 path 处写入 value，id 为写入 ID
//   - delete (c→s) 删除 path 处的子树
//   - get    (c→s) 读取 path 处的值
//   - value  (s→c) get 的应答，exists=false 表示不存在
//   - event  (s→c) 按服务端顺序广播的原始变更，operation=delete 表示删除
//   - ack    (s→c) 重复写入的确认（不产生新事件）
//   - error  (s→c) 写入或读取被拒绝
//
// # 不存在与 null
//
// ready/value 消息用 exists 区分"不存在"与 JSON null；
// set 消息缺失 value 时视为 null 标量。
package protocol
