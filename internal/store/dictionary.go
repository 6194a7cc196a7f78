package store

import "strings"

// commonCommands seeds suggestions for profiles with little history.
var commonCommands = []string{
	// File operations
	"ls",
	"ls -l",
	"ls -la",
	"ls -lh",
	"ls -lha",
	"ls -ltr",
	"cd",
	"cd ..",
	"cd ~",
	"cd -",
	"pwd",
	"mkdir",
	"mkdir -p",
	"rmdir",
	"rm",
	"rm -r",
	"rm -rf",
	"cp",
	"cp -r",
	"mv",
	"touch",
	"cat",
	"less",
	"more",
	"head",
	"tail",
	"tail -f",
	"ln",
	"ln -s",

	// Text processing
	"grep",
	"grep -r",
	"grep -i",
	"grep -v",
	"find",
	"find . -name",
	"sed",
	"awk",
	"cut",
	"sort",
	"uniq",
	"wc",
	"wc -l",
	"diff",
	"comm",

	// File permissions
	"chmod",
	"chmod +x",
	"chmod 755",
	"chmod 644",
	"chown",
	"chgrp",

	// Archive operations
	"tar",
	"tar -xzf",
	"tar -czf",
	"tar -xvf",
	"tar -cvf",
	"zip",
	"unzip",
	"gzip",
	"gunzip",
	"bzip2",
	"bunzip2",

	// System information
	"df",
	"df -h",
	"du",
	"du -sh",
	"free",
	"free -h",
	"top",
	"htop",
	"ps",
	"ps aux",
	"ps -ef",
	"uptime",
	"uname",
	"uname -a",
	"hostname",
	"whoami",
	"who",
	"w",

	// Process management
	"kill",
	"killall",
	"pkill",
	"bg",
	"fg",
	"jobs",
	"nohup",

	// Network
	"ping",
	"ping -c",
	"curl",
	"wget",
	"ssh",
	"scp",
	"rsync",
	"netstat",
	"netstat -tulpn",
	"ss",
	"ifconfig",
	"ip addr",
	"ip route",
	"traceroute",
	"nslookup",
	"dig",

	// Package management (apt)
	"apt update",
	"apt upgrade",
	"apt install",
	"apt remove",
	"apt search",
	"apt-get update",
	"apt-get upgrade",
	"apt-get install",

	// Package management (yum/dnf)
	"yum update",
	"yum install",
	"yum remove",
	"dnf update",
	"dnf install",

	// System control
	"systemctl start",
	"systemctl stop",
	"systemctl restart",
	"systemctl status",
	"systemctl enable",
	"systemctl disable",
	"service",

	// User management
	"sudo",
	"su",
	"useradd",
	"usermod",
	"userdel",
	"passwd",
	"groupadd",
	"groupmod",

	// Disk operations
	"mount",
	"umount",
	"fdisk",
	"parted",
	"mkfs",

	// Editors
	"nano",
	"vim",
	"vi",
	"emacs",

	// Shell
	"echo",
	"printf",
	"export",
	"source",
	"alias",
	"history",
	"clear",
	"exit",
	"logout",

	// Git
	"git status",
	"git add",
	"git commit",
	"git commit -m",
	"git push",
	"git pull",
	"git clone",
	"git checkout",
	"git branch",
	"git log",
	"git diff",
	"git merge",

	// Docker
	"docker ps",
	"docker ps -a",
	"docker images",
	"docker run",
	"docker exec",
	"docker stop",
	"docker rm",
	"docker rmi",
	"docker logs",
	"docker-compose up",
	"docker-compose down",

	// Kubernetes
	"kubectl get pods",
	"kubectl get services",
	"kubectl describe",
	"kubectl logs",
	"kubectl exec",
	"kubectl apply",
	"kubectl delete",
}

// dictionarySuggestions returns up to limit dictionary commands starting
// with prefix, in dictionary order.
func dictionarySuggestions(prefix string, limit int) []string {
	var out []string
	for _, cmd := range commonCommands {
		if len(out) >= limit {
			break
		}
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}
