package db

import (
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shinyyama/fleamarket-backend/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BuildDSN accepts DB_HOST as host, tcp(host:port), unix(path) or a socket
// path. INSTANCE_CONNECTION_NAME selects the Cloud SQL socket and wins over
// DB_HOST. Timestamps are read in the catalog timezone.
func BuildDSN(cfg *config.Config) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = cfg.Location()
	mc.Params = map[string]string{"charset": "utf8mb4"}

	host := strings.TrimSpace(cfg.DBHost)
	switch {
	case cfg.InstanceConnectionName != "":
		mc.Net, mc.Addr = "unix", "/cloudsql/"+cfg.InstanceConnectionName
	case strings.HasPrefix(host, "tcp(") && strings.HasSuffix(host, ")"):
		mc.Net, mc.Addr = "tcp", host[len("tcp("):len(host)-1]
	case strings.HasPrefix(host, "unix(") && strings.HasSuffix(host, ")"):
		mc.Net, mc.Addr = "unix", host[len("unix("):len(host)-1]
	case strings.HasPrefix(host, "/"):
		mc.Net, mc.Addr = "unix", host
	default:
		mc.Net, mc.Addr = "tcp", net.JoinHostPort(host, cfg.DBPort)
	}
	return mc.FormatDSN()
}

// Connect opens the pool shared by the SQL catalog and the notification table.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(gormmysql.Open(BuildDSN(cfg)), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	return gdb, nil
}
