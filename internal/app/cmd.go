package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はリソースリポジトリのAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandImport はフィードを取り込んでリソースを作成することを示す。
	CommandImport Command = "import"
	// CommandList はリソース一覧を表示することを示す。
	CommandList Command = "list"
	// CommandShow はリソース詳細を表示することを示す。
	CommandShow Command = "show"
	// CommandFeedback はリソースにフィードバックを投稿することを示す。
	CommandFeedback Command = "feedback"
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

	switch Command(args[0]) {
	case CommandServe, CommandMigrate, CommandImport, CommandList,
		CommandShow, CommandFeedback, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// requiredArgs はサブコマンドが必要とする位置引数の名前。
var requiredArgs = map[Command][]string{
	CommandImport:   {"feedURL"},
	CommandShow:     {"id"},
	CommandFeedback: {"id", "text"},
}

// CommandArgs はサブコマンド名に続く位置引数を検証して返す。
// 必要な引数が足りない場合は使い方を含むエラーを返す。
func CommandArgs(cmd Command, args []string) ([]string, error) {
	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	names := requiredArgs[cmd]
	if len(rest) < len(names) {
		return nil, fmt.Errorf("usage: rescat %s %s", cmd, usage(names))
	}
	return rest, nil
}

func usage(names []string) string {
	s := ""
	for i, n := range names {
		if i > 0 {
			s += " "
		}
		s += "<" + n + ">"
	}
	return s
}
