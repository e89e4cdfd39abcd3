package autotest

import (
	"testing"
)

func TestAutoString(t *testing.T) {
	at.StringCase(t)
}

func TestAutoSystem(t *testing.T) {
	at.SystemCase(t)
}

func TestAutoProtocol(t *testing.T) {
	at.ProtocolCase(t)
}

func TestAutoPipeline(t *testing.T) {
	at.PipelineCase(t)
}

func TestAutoMulti(t *testing.T) {
	at.MultiCase(t)
}

func TestAbnormalString(t *testing.T) {
	abnCli.StringCase(t)
}

func TestAbnormalSystem(t *testing.T) {
	abnCli.SystemCase(t)
}

func TestAbnormalMulti(t *testing.T) {
	abnCli.MultiCase(t)
}
