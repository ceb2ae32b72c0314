package store

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
		sale_price NUMERIC(10,2) CHECK (sale_price IS NULL OR sale_price < price),
		sku VARCHAR(100) UNIQUE NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		category VARCHAR(100),
		tags JSONB NOT NULL DEFAULT '[]',
		rating NUMERIC(2,1) NOT NULL DEFAULT 0 CHECK (rating >= 0 AND rating <= 5),
		images JSONB NOT NULL DEFAULT '[]',
		attributes JSONB NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		first_name VARCHAR(100),
		last_name VARCHAR(100),
		role VARCHAR(20) NOT NULL DEFAULT 'customer' CHECK (role IN ('customer', 'admin')),
		phone VARCHAR(30),
		address TEXT,
		city VARCHAR(100),
		state VARCHAR(100),
		postal_code VARCHAR(20),
		country VARCHAR(100),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		order_number VARCHAR(50) UNIQUE NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		total_amount NUMERIC(10,2) NOT NULL CHECK (total_amount >= 0),
		shipping_address JSONB NOT NULL DEFAULT '{}',
		billing_address JSONB NOT NULL DEFAULT '{}',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_method VARCHAR(50),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER,
		product_title VARCHAR(255) NOT NULL,
		sku VARCHAR(100) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(10,2) NOT NULL,
		total_price NUMERIC(10,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id SERIAL PRIMARY KEY,
		event_type VARCHAR(30) NOT NULL CHECK (event_type IN ('product_view', 'cart_add', 'search', 'filter_use', 'page_view')),
		product_id INTEGER,
		category VARCHAR(100),
		search_query TEXT,
		filter_data JSONB NOT NULL DEFAULT '{}',
		session_id VARCHAR(100),
		user_agent TEXT,
		ip_address VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	`CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_type_created ON analytics_events(event_type, created_at)`,
	`CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	// plain CREATE TRIGGER: a second boot reports 42710, which bootstrap tolerates
	`CREATE TRIGGER update_products_updated_at BEFORE UPDATE ON products
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
	`CREATE TRIGGER update_users_updated_at BEFORE UPDATE ON users
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
	`CREATE TRIGGER update_orders_updated_at BEFORE UPDATE ON orders
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
}
