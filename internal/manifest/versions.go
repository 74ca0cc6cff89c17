package manifest

const (
	openstackChannel      = "2023.2/edge"
	ovnChannel            = "23.09/edge"
	rabbitmqChannel       = "3.12/edge"
	traefikChannel        = "1.0/edge"
	microcephChannel      = "latest/edge"
	sunbeamMachineChannel = "2023.2/edge"
	microk8sChannel       = "legacy/stable"
	mysqlChannel          = "8.0/candidate"
	certAuthChannel       = "latest/beta"
)

var openstackK8sCharms = map[string]string{
	"cinder-ceph":           openstackChannel,
	"cinder":                openstackChannel,
	"glance":                openstackChannel,
	"horizon":               openstackChannel,
	"keystone":              openstackChannel,
	"neutron":               openstackChannel,
	"nova":                  openstackChannel,
	"placement":             openstackChannel,
	"ovn-central":           ovnChannel,
	"ovn-relay":             ovnChannel,
	"mysql":                 mysqlChannel,
	"mysql-router":          mysqlChannel,
	"certificate-authority": certAuthChannel,
	"rabbitmq":              rabbitmqChannel,
	"traefik":               traefikChannel,
}

var machineCharms = map[string]string{
	"microceph":            microcephChannel,
	"microk8s":             microk8sChannel,
	"openstack-hypervisor": openstackChannel,
	"sunbeam-machine":      sunbeamMachineChannel,
}

// PlanDirs maps each Terraform plan to its directory under the snap's etc/.
var PlanDirs = map[string]string{
	"sunbeam-machine-plan": "deploy-sunbeam-machine",
	"microk8s-plan":        "deploy-microk8s",
	"microceph-plan":       "deploy-microceph",
	"openstack-plan":       "deploy-openstack",
	"hypervisor-plan":      "deploy-openstack-hypervisor",
	"demo-setup":           "demo-setup",
}

// charmVars names the Terraform variables a charm's channel, revision and
// config are passed as.
type charmVars struct {
	Channel  string
	Revision string
	Config   string
}

func prefixed(prefix string) charmVars {
	return charmVars{Channel: prefix + "channel", Revision: prefix + "revision", Config: prefix + "config"}
}

// tfvarMap is plan -> charm -> variable names.
var tfvarMap = func() map[string]map[string]charmVars {
	openstack := map[string]charmVars{}
	for charm := range openstackK8sCharms {
		openstack[charm] = prefixed(charm + "-")
	}
	return map[string]map[string]charmVars{
		"openstack-plan":       openstack,
		"microk8s-plan":        {"microk8s": prefixed("charm_microk8s_")},
		"microceph-plan":       {"microceph": prefixed("charm_microceph_")},
		"hypervisor-plan":      {"openstack-hypervisor": prefixed("charm_")},
		"sunbeam-machine-plan": {"sunbeam-machine": prefixed("charm_")},
	}
}()
