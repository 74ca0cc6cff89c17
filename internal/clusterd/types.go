package clusterd

import "time"

// Member is a clusterd cluster member as returned by the members list.
type Member struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
	Status  string `json:"status" yaml:"status"`
}

// Token is a pending join token.
type Token struct {
	Name  string `json:"name" yaml:"name"`
	Token string `json:"token" yaml:"token"`
}

type Node struct {
	Name      string   `json:"name" yaml:"name"`
	Role      []string `json:"role" yaml:"role"`
	MachineID int      `json:"machineid" yaml:"machineid"`
	SystemID  string   `json:"systemid,omitempty" yaml:"systemid,omitempty"`
}

type JujuUser struct {
	Username string `json:"username" yaml:"username"`
	Token    string `json:"token" yaml:"token"`
}

// Manifest is a stored deployment manifest. Data is the YAML document.
type Manifest struct {
	ManifestID  string `json:"manifestid" yaml:"manifestid"`
	AppliedDate string `json:"applieddate" yaml:"applieddate"`
	Data        string `json:"data" yaml:"data"`
}

// Lock is a Terraform state lock held in clusterd.
type Lock struct {
	ID        string    `json:"ID" yaml:"ID"`
	Operation string    `json:"Operation" yaml:"Operation"`
	Info      string    `json:"Info" yaml:"Info"`
	Who       string    `json:"Who" yaml:"Who"`
	Version   string    `json:"Version" yaml:"Version"`
	Created   time.Time `json:"Created" yaml:"Created"`
	Path      string    `json:"Path" yaml:"Path"`
}
