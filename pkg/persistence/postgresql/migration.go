package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Templates: editable graphs
			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT false,
				created_by VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_templates_active ON workflow_templates(active);
			CREATE INDEX idx_workflow_templates_deleted_at ON workflow_templates(deleted_at);

			CREATE TABLE workflow_template_nodes (
				template_id VARCHAR(255) NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				ordinal INT NOT NULL,
				label VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL CHECK (node_type IN
					('start', 'department', 'role', 'approval', 'form', 'client', 'sync', 'conditional', 'end')),
				entity_id VARCHAR(255),
				settings JSONB NOT NULL DEFAULT '{}',
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				PRIMARY KEY (template_id, id)
			);

			CREATE TABLE workflow_template_connections (
				template_id VARCHAR(255) NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				ordinal INT NOT NULL,
				from_node_id VARCHAR(255) NOT NULL,
				to_node_id VARCHAR(255) NOT NULL,
				condition VARCHAR(255),
				source_handle VARCHAR(255),
				PRIMARY KEY (template_id, id)
			);

			CREATE INDEX idx_workflow_template_connections_from ON workflow_template_connections(template_id, from_node_id);
		`,
		2: `
			-- Instances and the records they own
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				workflow_template_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'cancelled')),
				current_node_id VARCHAR(255) NOT NULL,
				has_parallel_paths BOOLEAN NOT NULL DEFAULT false,
				started_snapshot JSONB NOT NULL,
				completed_snapshot JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				cancelled_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL
			);

			CREATE INDEX idx_workflow_instances_project ON workflow_instances(project_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);

			CREATE TABLE workflow_active_steps (
				id VARCHAR(255) PRIMARY KEY,
				workflow_instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				ordinal INT NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				branch_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'waiting', 'completed')),
				assigned_user_id VARCHAR(255),
				route_label VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_active_steps_instance ON workflow_active_steps(workflow_instance_id, ordinal);
			CREATE INDEX idx_workflow_active_steps_open ON workflow_active_steps(status, assigned_user_id);

			CREATE TABLE workflow_node_assignments (
				id VARCHAR(255) PRIMARY KEY,
				workflow_instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				ordinal INT NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				assigned_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_instance_id, node_id, user_id)
			);

			CREATE TABLE workflow_history (
				id VARCHAR(255) PRIMARY KEY,
				workflow_instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				sequence INT NOT NULL,
				from_node_id VARCHAR(255) NOT NULL,
				to_node_id VARCHAR(255),
				approval_decision VARCHAR(255),
				handed_off_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_instance_id, sequence)
			);
		`,
	}
}
