package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob はCLIのメトリクスをPushgatewayへ送るときのジョブ名。
const PushJob = "rescat_cli"

// Push はgathererのメトリクスをPushgatewayへ送信する。
// スクレイプされる前に終了するCLIプロセス向けで、commandをグルーピングキーに使う。
func Push(ctx context.Context, gatewayURL, command string, gatherer prometheus.Gatherer) error {
	return push.New(gatewayURL, PushJob).
		Grouping("command", command).
		Gatherer(gatherer).
		PushContext(ctx)
}
