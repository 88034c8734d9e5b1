package config

// configDir 由外部通过 SetConfigDir 指定，优先级最高
var configDir string

// envSearchDirs .env 文件搜索目录
var envSearchDirs = []string{
	".",
	"..",
}

// SetConfigDir 设置配置文件目录（用于 --config 命令行参数）
func SetConfigDir(dir string) {
	configDir = dir
}

// configPathsForEnv 根据环境返回配置文件搜索路径
func configPathsForEnv(env Environment) []string {
	if configDir != "" {
		return []string{configDir}
	}
	if env == EnvProduction {
		return []string{"/etc/agentpm"}
	}
	return []string{"configs", "../configs", "../../configs"}
}
