package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はテナント・通知設定管理のAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は同期スケジューラ・配信ループ・保持期間ジョブの
	// ワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はコントロールプレーンのマイグレーションを実行することを示す。
	// テナントパーティションはマイグレーション対象外（同期時に作成される）。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
