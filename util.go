package hiredis

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/distributedio/hiredis/context"
	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/metrics"
	"github.com/twinj/uuid"

	"go.uber.org/zap"
)

// LogVersionInfo logs the build info
func LogVersionInfo() {
	zap.L().Info("Welcome to hiredis.")
	zap.L().Info("Client info", zap.String("Release Version", context.ReleaseVersion))
	zap.L().Info("Client info", zap.String("Git Commit Hash", context.GitHash))
	zap.L().Info("Client info", zap.String("Git Commit Log", context.GitLog))
	zap.L().Info("Client info", zap.String("Git Branch", context.GitBranch))
	zap.L().Info("Client info", zap.String("UTC Build Time", context.BuildTS))
	zap.L().Info("Client info", zap.String("Golang compiler Version", context.GolangVersion))
}

// PrintVersionInfo prints the client version info
func PrintVersionInfo() {
	fmt.Println("Welcome to hiredis.")
	fmt.Println("Release Version: ", context.ReleaseVersion)
	fmt.Println("Git Commit Hash: ", context.GitHash)
	fmt.Println("Git Commit Log: ", context.GitLog)
	fmt.Println("Git Branch: ", context.GitBranch)
	fmt.Println("UTC Build Time:  ", context.BuildTS)
	fmt.Println("Golang compiler Version: ", context.GolangVersion)
}

//GetClientID starts with 1 and allocates clientID incrementally
func GetClientID() func() int64 {
	var id int64
	return func() int64 {
		return atomic.AddInt64(&id, 1)
	}
}

//GenerateTraceID grenerates a traceid for once a request
func GenerateTraceID() string { return uuid.NewV4().String() }

var nextConnID = GetClientID()

func logCommand(connCtx *context.ConnContext, traceID, name string) {
	if env := zap.L().Check(zap.DebugLevel, "send command"); env != nil {
		env.Write(zap.String("addr", connCtx.Addr),
			zap.Int64("clientid", connCtx.ID),
			zap.String("mode", connCtx.Mode),
			zap.String("traceid", traceID),
			zap.String("command", name))
	}
}

func countFault(connCtx *context.ConnContext, err error) {
	kind := KindOf(err)
	metrics.GetMetrics().FaultCounterVec.WithLabelValues(kind.String()).Inc()
	zap.L().Error("connection fault", zap.String("addr", connCtx.Addr),
		zap.Int64("clientid", connCtx.ID),
		zap.String("mode", connCtx.Mode),
		zap.String("kind", kind.String()),
		zap.String("command", connCtx.LastCmd),
		zap.Error(err))
}

func countReply(v resp.Value) {
	metrics.GetMetrics().ReplyCounterVec.WithLabelValues(v.Kind.String()).Inc()
}

func commandLabel(name string) string {
	return strings.ToLower(name)
}
