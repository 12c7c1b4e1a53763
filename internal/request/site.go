package request

import "time"

type CreateSite struct {
	Domain     string `validate:"required,fqdn"`
	DocRoot    string `validate:"required"`
	DBName     string `validate:"required,dbident,max=64"`
	DBUser     string `validate:"required,dbident,max=32"`
	DBPassword string `validate:"required"`
	WordPress  bool
	// CMSSource overrides the configured archive URL or path.
	CMSSource  string
	DBRootAuth string `validate:"required,oneof=auto password socket"`
}

type UninstallSite struct {
	Domain  string `validate:"required,fqdn"`
	DocRoot string `validate:"required"`
	DBName  string `validate:"required,dbident,max=64"`
	DBUser  string `validate:"required,dbident,max=32"`
	// DBRootAuth defaults to auto.
	DBRootAuth string `validate:"omitempty,oneof=auto password socket"`
}

type InstallLAMP struct {
	DBEngine      string        `validate:"required,oneof=auto mysql mariadb"`
	DBRootPassEnv string        `validate:"omitempty,envname"`
	DBRootPlugin  string        `validate:"omitempty,oneof=mysql_native_password caching_sha2_password"`
	WaitAptLock   time.Duration `validate:"min=0"`
}

type GenerateSSL struct {
	Domain string `validate:"required,fqdn"`
}

type WPPermissions struct {
	Path string `validate:"required"`
}

type DatabaseQuery struct {
	DBRootAuth string `validate:"required,oneof=auto password socket"`
}
