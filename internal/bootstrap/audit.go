package bootstrap

import (
	"fmt"

	"github.com/9triver/opcgw/internal/domain/audit"
	auditrepo "github.com/9triver/opcgw/internal/infra/repository/audit"
	"github.com/sirupsen/logrus"
)

// bootstrapAudit 初始化会话准入审计模块
func bootstrapAudit(opcgw *Opcgw) error {
	repo, err := auditrepo.NewOperationLogRepoSQLite(opcgw.Config.Database.AuditDBPath, &opcgw.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to create operation log repository: %w", err)
	}
	opcgw.auditRepo = repo
	opcgw.AuditManager = audit.NewManager(audit.NewService(repo))

	logrus.Infof("Audit module initialized: %s", opcgw.Config.Database.AuditDBPath)
	return nil
}
