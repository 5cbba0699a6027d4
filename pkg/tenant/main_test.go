package tenant

import (
	"os"
	"testing"

	"github.com/labworks/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}
